// Package card interprets the algorithm attributes an OpenPGP smart card
// reports for its key slots (data objects C1, C2 and C3).
package card

import (
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/hnpl/libapps/internal/curve"
	"github.com/hnpl/libapps/internal/oid"
	"golang.org/x/crypto/ssh"
)

var (
	ErrInvalidAttributes = errors.New("card: invalid algorithm attributes")
	ErrUnrecognizedCurve = errors.New("card: unrecognized curve")
	ErrNotSigningKey     = errors.New("card: key cannot sign")
)

// Algorithm is the first byte of the attributes.
type Algorithm uint8

const (
	AlgorithmRSA   Algorithm = 0x01
	AlgorithmECDH  Algorithm = 0x12
	AlgorithmECDSA Algorithm = 0x13
	AlgorithmEdDSA Algorithm = 0x16
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmRSA:
		return "rsa"
	case AlgorithmECDH:
		return "ecdh"
	case AlgorithmECDSA:
		return "ecdsa"
	case AlgorithmEdDSA:
		return "eddsa"
	default:
		return fmt.Sprintf("algorithm(%#02x)", uint8(a))
	}
}

// Attributes is one parsed key slot description. RSA slots fill the bit
// sizes; EC slots fill Curve.
type Attributes struct {
	Algorithm    Algorithm
	ModulusBits  uint16
	ExponentBits uint16
	ImportFormat byte
	Curve        curve.Curve
}

// ParseAlgorithmAttributes parses raw as reported by the card in reader
// readerLabel. The label selects vendor corrections for the curve OID.
func ParseAlgorithmAttributes(raw []byte, readerLabel string) (Attributes, error) {
	if len(raw) == 0 {
		return Attributes{}, fmt.Errorf("%w: empty", ErrInvalidAttributes)
	}
	attrs := Attributes{Algorithm: Algorithm(raw[0])}
	switch attrs.Algorithm {
	case AlgorithmRSA:
		if len(raw) != 5 && len(raw) != 6 {
			return Attributes{}, fmt.Errorf("%w: rsa length %d", ErrInvalidAttributes, len(raw))
		}
		attrs.ModulusBits = binary.BigEndian.Uint16(raw[1:3])
		attrs.ExponentBits = binary.BigEndian.Uint16(raw[3:5])
		if len(raw) == 6 {
			attrs.ImportFormat = raw[5]
		}
		return attrs, nil
	case AlgorithmECDH, AlgorithmECDSA, AlgorithmEdDSA:
		dotted, ok := oid.DecodeCurveWithVendorFixes(raw[1:], readerLabel)
		if !ok {
			return Attributes{}, fmt.Errorf("%w: undecodable oid %x", ErrUnrecognizedCurve, raw[1:])
		}
		c, ok := curve.ByOID(dotted)
		if !ok {
			return Attributes{}, fmt.Errorf("%w: %s", ErrUnrecognizedCurve, dotted)
		}
		attrs.Curve = c
		return attrs, nil
	default:
		return Attributes{}, fmt.Errorf("%w: algorithm %s", ErrInvalidAttributes, attrs.Algorithm)
	}
}

// SSHKeyType returns the SSH key algorithm name for the slot.
func (a Attributes) SSHKeyType() (string, error) {
	switch a.Algorithm {
	case AlgorithmRSA:
		return ssh.KeyAlgoRSA, nil
	case AlgorithmECDSA:
		if a.Curve.Signing() && a.Curve.Name != curve.Ed25519.Name {
			return a.Curve.KeyType, nil
		}
	case AlgorithmEdDSA:
		if a.Curve.Name == curve.Ed25519.Name {
			return a.Curve.KeyType, nil
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrNotSigningKey, a.Algorithm, a.Curve.Name)
}

// ECPublicKeyBlob builds the SSH key blob for an EC slot from the public
// point the card returned.
func (a Attributes) ECPublicKeyBlob(point []byte) ([]byte, error) {
	if _, err := a.SSHKeyType(); err != nil {
		return nil, err
	}
	if a.Algorithm == AlgorithmRSA {
		return nil, fmt.Errorf("%w: rsa slot has no point", ErrInvalidAttributes)
	}
	return curve.MarshalPublicKey(a.Curve, point)
}

// RSAPublicKeyBlob builds the SSH key blob for an RSA slot from the
// big-endian modulus and exponent the card returned.
func RSAPublicKeyBlob(modulus, exponent []byte) ([]byte, error) {
	e := new(big.Int).SetBytes(exponent)
	if len(modulus) == 0 || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: rsa public key", ErrInvalidAttributes)
	}
	pub, err := ssh.NewPublicKey(&rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(e.Int64()),
	})
	if err != nil {
		return nil, fmt.Errorf("card: rsa public key: %w", err)
	}
	return pub.Marshal(), nil
}
