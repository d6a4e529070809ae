// Package serialization turns ciphertexts and key material into byte
// streams for the persisted-state file layout and reads them back on a
// different process invocation.
package serialization

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/ldsec/lattigo/v2/ckks/bootstrapping"
	"github.com/ldsec/lattigo/v2/rlwe"
)

// CiphertextBytes is the on-disk form of a Ciphertext.
type CiphertextBytes struct {
	Scale float64
	Value []byte
}

// SerializeCiphertext converts a Ciphertext to bytes.
func SerializeCiphertext(ct *ckks.Ciphertext) ([]byte, error) {
	if ct == nil {
		return nil, fmt.Errorf("serialization: nil ciphertext")
	}
	raw, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ciphertext: %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(CiphertextBytes{Scale: ct.Scale, Value: raw}); err != nil {
		return nil, fmt.Errorf("failed to encode CiphertextBytes: %v", err)
	}
	return buf.Bytes(), nil
}

// DeserializeCiphertext converts bytes back to a Ciphertext.
func DeserializeCiphertext(data []byte) (*ckks.Ciphertext, error) {
	var ctBytes CiphertextBytes
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&ctBytes); err != nil {
		return nil, fmt.Errorf("failed to decode CiphertextBytes: %v", err)
	}

	ct := new(ckks.Ciphertext)
	if err := ct.UnmarshalBinary(ctBytes.Value); err != nil {
		return nil, fmt.Errorf("failed to deserialize ciphertext: %v", err)
	}
	ct.Scale = ctBytes.Scale
	return ct, nil
}

// PlaintextBytes is the on-disk form of a Plaintext.
type PlaintextBytes struct {
	Scale float64
	Value []byte
}

// SerializePlaintext converts a Plaintext to bytes, used to cache the
// encoded weight plaintexts internal/weights builds from a network's CSV
// files.
func SerializePlaintext(pt *ckks.Plaintext) ([]byte, error) {
	if pt == nil {
		return nil, fmt.Errorf("serialization: nil plaintext")
	}
	raw, err := pt.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize plaintext: %v", err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(PlaintextBytes{Scale: pt.Scale, Value: raw}); err != nil {
		return nil, fmt.Errorf("failed to encode PlaintextBytes: %v", err)
	}
	return buf.Bytes(), nil
}

// DeserializePlaintext converts bytes back to a Plaintext.
func DeserializePlaintext(data []byte) (*ckks.Plaintext, error) {
	var ptBytes PlaintextBytes
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&ptBytes); err != nil {
		return nil, fmt.Errorf("failed to decode PlaintextBytes: %v", err)
	}
	pt := new(ckks.Plaintext)
	if err := pt.UnmarshalBinary(ptBytes.Value); err != nil {
		return nil, fmt.Errorf("failed to deserialize plaintext: %v", err)
	}
	pt.Scale = ptBytes.Scale
	return pt, nil
}

// SerializeParameters serializes the CKKS ring/modulus parameters both
// client and server must agree on, the "cc.bin" (crypto context) file in
// the persisted-state layout.
func SerializeParameters(params ckks.Parameters) ([]byte, error) {
	raw, err := params.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize parameters: %v", err)
	}
	return raw, nil
}

// DeserializeParameters reads back CKKS parameters serialized by
// SerializeParameters.
func DeserializeParameters(data []byte) (ckks.Parameters, error) {
	var params ckks.Parameters
	if err := params.UnmarshalBinary(data); err != nil {
		return ckks.Parameters{}, fmt.Errorf("failed to deserialize parameters: %v", err)
	}
	return params, nil
}

// SerializeSecretKey serializes a secret key.
func SerializeSecretKey(sk *rlwe.SecretKey) ([]byte, error) {
	return sk.MarshalBinary()
}

// DeserializeSecretKey deserializes a secret key.
func DeserializeSecretKey(data []byte) (*rlwe.SecretKey, error) {
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize secret key: %v", err)
	}
	return sk, nil
}

// SerializePublicKey serializes a public key.
func SerializePublicKey(pk *rlwe.PublicKey) ([]byte, error) {
	return pk.MarshalBinary()
}

// DeserializePublicKey deserializes a public key.
func DeserializePublicKey(data []byte) (*rlwe.PublicKey, error) {
	pk := new(rlwe.PublicKey)
	if err := pk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize public key: %v", err)
	}
	return pk, nil
}

// SerializeRelinearizationKey serializes a relinearization key.
func SerializeRelinearizationKey(rlk *rlwe.RelinearizationKey) ([]byte, error) {
	return rlk.MarshalBinary()
}

// DeserializeRelinearizationKey deserializes a relinearization key.
func DeserializeRelinearizationKey(data []byte) (*rlwe.RelinearizationKey, error) {
	rlk := new(rlwe.RelinearizationKey)
	if err := rlk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize relinearization key: %v", err)
	}
	return rlk, nil
}

// SerializeBootstrapKeys serializes the evaluation keys a bootstrapper
// needs, the "btp.bin" file a network with any bootstrap layer writes
// alongside its rotation-key groups so a key-less server context can
// install its own bootstrapper without ever holding the secret key.
func SerializeBootstrapKeys(keys bootstrapping.EvaluationKeys) ([]byte, error) {
	raw, err := keys.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bootstrap evaluation keys: %v", err)
	}
	return raw, nil
}

// DeserializeBootstrapKeys reads back bootstrap evaluation keys
// serialized by SerializeBootstrapKeys.
func DeserializeBootstrapKeys(data []byte) (bootstrapping.EvaluationKeys, error) {
	var keys bootstrapping.EvaluationKeys
	if err := keys.UnmarshalBinary(data); err != nil {
		return bootstrapping.EvaluationKeys{}, fmt.Errorf("failed to deserialize bootstrap evaluation keys: %v", err)
	}
	return keys, nil
}

// RotationKeyGroupBytes is the on-disk form of one named rotation-key
// group: the offsets it was generated for, plus the serialized key set.
// This is what the persisted-state layout's "layer{1..4}_rk.bin" files hold.
type RotationKeyGroupBytes struct {
	Offsets []int
	Value   []byte
}

// SerializeRotationKeySet serializes a rotation key set for a group of offsets.
func SerializeRotationKeySet(offsets []int, rtks *rlwe.RotationKeySet) ([]byte, error) {
	raw, err := rtks.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize rotation keys: %v", err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(RotationKeyGroupBytes{Offsets: offsets, Value: raw}); err != nil {
		return nil, fmt.Errorf("failed to encode rotation key group: %v", err)
	}
	return buf.Bytes(), nil
}

// DeserializeRotationKeySet deserializes a rotation key set, returning
// the offsets it was generated for alongside the key set itself.
func DeserializeRotationKeySet(data []byte) ([]int, *rlwe.RotationKeySet, error) {
	var group RotationKeyGroupBytes
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&group); err != nil {
		return nil, nil, fmt.Errorf("failed to decode rotation key group: %v", err)
	}
	rtks := new(rlwe.RotationKeySet)
	if err := rtks.UnmarshalBinary(group.Value); err != nil {
		return nil, nil, fmt.Errorf("failed to deserialize rotation keys: %v", err)
	}
	return group.Offsets, rtks, nil
}
