// Package curve maps elliptic-curve OIDs to SSH key types and builds SSH
// public key blobs from raw curve points.
package curve

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

var (
	ErrUnsupportedCurve = errors.New("curve: unsupported curve")
	ErrInvalidPoint     = errors.New("curve: invalid public point")
)

// Curve describes one named parameter set. KeyType is empty for curves
// that cannot carry an SSH signing key.
type Curve struct {
	Name      string
	OID       string
	KeyType   string
	PointSize int
}

// Signing reports whether keys on c can be used for SSH signatures.
func (c Curve) Signing() bool {
	return c.KeyType != ""
}

var (
	NISTP256 = Curve{Name: "nistp256", OID: "1.2.840.10045.3.1.7", KeyType: ssh.KeyAlgoECDSA256, PointSize: 65}
	NISTP384 = Curve{Name: "nistp384", OID: "1.3.132.0.34", KeyType: ssh.KeyAlgoECDSA384, PointSize: 97}
	NISTP521 = Curve{Name: "nistp521", OID: "1.3.132.0.35", KeyType: ssh.KeyAlgoECDSA521, PointSize: 133}
	Ed25519  = Curve{Name: "ed25519", OID: "1.3.6.1.4.1.11591.15.1", KeyType: ssh.KeyAlgoED25519, PointSize: 32}

	Curve25519      = Curve{Name: "curve25519", OID: "1.3.6.1.4.1.3029.1.5.1", PointSize: 32}
	BrainpoolP256r1 = Curve{Name: "brainpoolP256r1", OID: "1.3.36.3.3.2.8.1.1.7", PointSize: 65}
	BrainpoolP384r1 = Curve{Name: "brainpoolP384r1", OID: "1.3.36.3.3.2.8.1.1.11", PointSize: 97}
	BrainpoolP512r1 = Curve{Name: "brainpoolP512r1", OID: "1.3.36.3.3.2.8.1.1.13", PointSize: 129}
)

var known = []Curve{
	NISTP256, NISTP384, NISTP521, Ed25519,
	Curve25519, BrainpoolP256r1, BrainpoolP384r1, BrainpoolP512r1,
}

// ByOID looks up a curve by dotted OID.
func ByOID(dotted string) (Curve, bool) {
	for _, c := range known {
		if c.OID == dotted {
			return c, true
		}
	}
	return Curve{}, false
}

// ByName looks up a curve by its short name.
func ByName(name string) (Curve, bool) {
	for _, c := range known {
		if c.Name == name {
			return c, true
		}
	}
	return Curve{}, false
}

// All returns every known curve.
func All() []Curve {
	out := make([]Curve, len(known))
	copy(out, known)
	return out
}

// MarshalPublicKey returns the SSH wire blob for the public point on c.
// NIST points are uncompressed (0x04 || X || Y). Ed25519 points are the
// 32 raw bytes, optionally with the OpenPGP 0x40 prefix.
func MarshalPublicKey(c Curve, point []byte) ([]byte, error) {
	pub, err := publicKey(c, point)
	if err != nil {
		return nil, err
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return sshPub.Marshal(), nil
}

func publicKey(c Curve, point []byte) (any, error) {
	switch c.Name {
	case Ed25519.Name:
		if len(point) == ed25519.PublicKeySize+1 && point[0] == 0x40 {
			point = point[1:]
		}
		if len(point) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: %s point length %d", ErrInvalidPoint, c.Name, len(point))
		}
		pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(pub, point)
		return pub, nil
	case NISTP256.Name, NISTP384.Name, NISTP521.Name:
		pub, err := ecdsa.ParseUncompressedPublicKey(nistCurve(c), point)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPoint, c.Name, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, c.Name)
	}
}

func nistCurve(c Curve) elliptic.Curve {
	switch c.Name {
	case NISTP384.Name:
		return elliptic.P384()
	case NISTP521.Name:
		return elliptic.P521()
	default:
		return elliptic.P256()
	}
}

// Fingerprint returns the SHA256 fingerprint of an SSH key blob.
func Fingerprint(blob []byte) (string, error) {
	pub, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return "", fmt.Errorf("curve: parse key blob: %w", err)
	}
	return ssh.FingerprintSHA256(pub), nil
}
