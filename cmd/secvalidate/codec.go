// secvalidate has no NDN TLV codec available (wire encoding is out of
// scope for the library itself, spec.md §1), so the CLI reads Data
// packets and certificates from a small JSON representation instead.
// This file is that representation's decoder.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

type jsonKeyLocator struct {
	Name string `json:"name"`
}

type jsonValidityPeriod struct {
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
}

type jsonSignature struct {
	Type           string              `json:"type"`
	KeyLocator     jsonKeyLocator      `json:"keyLocator"`
	ValidityPeriod *jsonValidityPeriod `json:"validityPeriod,omitempty"`
	Value          string              `json:"value"`
	SignedPortion  string              `json:"signedPortion"`
}

type jsonData struct {
	Name            string        `json:"name"`
	ContentType     string        `json:"contentType"`
	FreshnessPeriod string        `json:"freshnessPeriod"`
	Content         string        `json:"content"`
	Signature       jsonSignature `json:"signature"`
}

func decodeSigType(s string) (packet.SignatureType, error) {
	switch s {
	case "rsa-sha256":
		return packet.SignatureTypeSHA256WithRSA, nil
	case "ecdsa-sha256":
		return packet.SignatureTypeSHA256WithECDSA, nil
	default:
		return 0, fmt.Errorf("unknown signature type %q", s)
	}
}

func decodeContentType(s string) (packet.ContentType, error) {
	switch s {
	case "", "blob":
		return packet.ContentTypeBlob, nil
	case "key":
		return packet.ContentTypeKey, nil
	case "link":
		return packet.ContentTypeLink, nil
	default:
		return packet.ContentTypeOther, nil
	}
}

func decodeData(raw []byte) (packet.Data, error) {
	var jd jsonData
	if err := json.Unmarshal(raw, &jd); err != nil {
		return packet.Data{}, fmt.Errorf("decoding JSON data packet: %w", err)
	}

	content, err := base64.StdEncoding.DecodeString(jd.Content)
	if err != nil {
		return packet.Data{}, fmt.Errorf("decoding content: %w", err)
	}
	sigValue, err := base64.StdEncoding.DecodeString(jd.Signature.Value)
	if err != nil {
		return packet.Data{}, fmt.Errorf("decoding signature value: %w", err)
	}
	signedPortion, err := base64.StdEncoding.DecodeString(jd.Signature.SignedPortion)
	if err != nil {
		return packet.Data{}, fmt.Errorf("decoding signed portion: %w", err)
	}
	sigType, err := decodeSigType(jd.Signature.Type)
	if err != nil {
		return packet.Data{}, err
	}
	contentType, err := decodeContentType(jd.ContentType)
	if err != nil {
		return packet.Data{}, err
	}
	freshness, err := time.ParseDuration(jd.FreshnessPeriod)
	if err != nil && jd.FreshnessPeriod != "" {
		return packet.Data{}, fmt.Errorf("decoding freshnessPeriod: %w", err)
	}

	info := packet.SignatureInfo{
		Type: sigType,
		KeyLocator: packet.KeyLocator{
			Type: packet.KeyLocatorTypeKeyName,
			Name: name.Parse(jd.Signature.KeyLocator.Name),
		},
	}
	if jd.Signature.ValidityPeriod != nil {
		info.ValidityPeriod = &packet.ValidityPeriod{
			NotBefore: jd.Signature.ValidityPeriod.NotBefore,
			NotAfter:  jd.Signature.ValidityPeriod.NotAfter,
		}
	}

	return packet.Data{
		Name: name.Parse(jd.Name),
		MetaInfo: packet.MetaInfo{
			ContentType:     contentType,
			FreshnessPeriod: freshness,
		},
		Content: content,
		Signature: packet.Signature{
			Info:          info,
			Value:         sigValue,
			SignedPortion: signedPortion,
		},
	}, nil
}

func decodeCertificate(raw []byte) (*cert.V2, error) {
	d, err := decodeData(raw)
	if err != nil {
		return nil, err
	}
	return cert.Decode(d)
}
