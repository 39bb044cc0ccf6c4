package vrf

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "saferwinning-vrf-signing-key"

// deriveSigningKey deterministically derives a P-256 key from secret.
func deriveSigningKey(secret []byte) (*ecdsa.PrivateKey, error) {
	if len(secret) == 0 {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	curve := elliptic.P256()
	n := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	buf := make([]byte, 48)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), buf); err != nil {
		return nil, fmt.Errorf("derive key material: %w", err)
	}
	d := new(big.Int).SetBytes(buf)
	d.Mod(d, n)
	d.Add(d, big.NewInt(1))

	priv := &ecdsa.PrivateKey{D: d}
	priv.PublicKey.Curve = curve
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}

// prove signs the request input and returns the signature as proof and its
// hash as the random output.
func prove(key *ecdsa.PrivateKey, input []byte) (proof []byte, output [32]byte, err error) {
	digest := sha256.Sum256(input)
	proof, err = ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, output, fmt.Errorf("sign: %w", err)
	}
	return proof, sha256.Sum256(proof), nil
}

// Verify checks that output was produced for input by the holder of the key
// in publicKey (PKIX DER).
func Verify(publicKey, input, proof, output []byte) bool {
	parsed, err := x509.ParsePKIXPublicKey(publicKey)
	if err != nil {
		return false
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(input)
	if !ecdsa.VerifyASN1(pub, digest[:], proof) {
		return false
	}
	want := sha256.Sum256(proof)
	return len(output) == len(want) && string(output) == string(want[:])
}

func requestInput(requestID string, seed []byte) []byte {
	input := make([]byte, 0, len(requestID)+len(seed))
	input = append(input, requestID...)
	return append(input, seed...)
}
