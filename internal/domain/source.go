package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Settings is a provider configuration: setting name to value.
type Settings map[string]interface{}

// String returns the string form of a setting and whether it is non-empty.
func (s Settings) String(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", false
	}
	str := fmt.Sprint(v)
	return str, str != ""
}

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Value implements the driver.Valuer interface for database serialization.
func (s Settings) Value() (driver.Value, error) {
	return jsonValue(map[string]interface{}(s))
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *Settings) Scan(value interface{}) error {
	m, err := jsonScan(value)
	if err != nil {
		return err
	}
	*s = m
	return nil
}

func jsonValue(m map[string]interface{}) (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(value interface{}) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if value == nil {
		return m, nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return nil, errors.New("failed to scan JSON document")
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Well-known setting names.
const (
	SettingDefaultSRS     = "defaultSrs"
	SettingCRS            = "crs"
	SettingXMLPretty      = "xml.pretty"
	SettingCRSEPSGPrefix  = "crs.epsg.prefix"
	SettingContentType    = "contentType"
	EPSGNamespacePrefix   = "http://www.opengis.net/def/crs/EPSG/0/"
	DefaultTargetCRS      = "code:EPSG:4326"
	EPSGCodePrefix        = "code:EPSG"
	DefaultTargetFilename = "result.out"
)

// SourceDescriptor is one input of a transformation.
type SourceDescriptor struct {
	Location           string
	ProviderID         string
	Settings           Settings
	IncludeInTransform bool
	Attachments        []string
}

// DetectCRS returns the first non-empty default CRS across sources, in order.
func DetectCRS(sources []SourceDescriptor) (string, bool) {
	for _, src := range sources {
		if crs, ok := src.Settings.String(SettingDefaultSRS); ok {
			return crs, true
		}
	}
	return "", false
}
