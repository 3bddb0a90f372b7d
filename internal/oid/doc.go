// Package oid decodes DER OBJECT IDENTIFIER contents octets into dotted
// decimal form.
//
// Input is the contents only, without the 0x06 tag and length. The first
// sub-identifier packs the first two arcs (X.690 8.19.4); every
// sub-identifier is base-128 big-endian with the high bit set on all but
// its last byte.
//
// Some hardware tokens append a stray byte to the curve OIDs they report.
// DecodeCurveWithVendorFixes strips it, but only when the device label
// matches a registered Fixup. The label is the trust gate: the same bytes
// from an unrecognised device decode unmodified.
package oid
