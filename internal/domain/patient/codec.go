package patient

import (
	"encoding/json"
	"fmt"

	"github.com/vitruvial/vitruvial/internal/platform/phi"
)

// encodeInfo serializes the extracted-info map to JSON and encrypts it when
// an encryptor is configured. The stored form is opaque; identity matching
// only ever runs against the in-memory index.
func encodeInfo(enc phi.FieldEncryptor, info map[string]string) (string, error) {
	if info == nil {
		info = map[string]string{}
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("marshal extracted info: %w", err)
	}
	return encryptField(enc, string(raw))
}

func decodeInfo(enc phi.FieldEncryptor, stored string) (map[string]string, error) {
	raw, err := decryptField(enc, stored)
	if err != nil {
		return nil, err
	}
	info := map[string]string{}
	if raw == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("unmarshal extracted info: %w", err)
	}
	return info, nil
}

func encryptField(enc phi.FieldEncryptor, v string) (string, error) {
	if enc == nil {
		return v, nil
	}
	return enc.Encrypt(v)
}

func decryptField(enc phi.FieldEncryptor, v string) (string, error) {
	if enc == nil {
		return v, nil
	}
	return enc.Decrypt(v)
}
