package config

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/freecut/exportd/pkg/bytesize"
)

// ByteSize is a configuration value that accepts either a plain integer byte
// count or a human-readable string such as "512MB".
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := bytesize.Parse(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// String returns the human-readable form.
func (b ByteSize) String() string {
	return bytesize.Format(bytesize.Size(b))
}

// Int64 returns the raw byte count.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// ByteSizeDecodeHook is a mapstructure decode hook that converts string or
// numeric config values into ByteSize. Viper does not invoke UnmarshalText
// for mapstructure targets, so this hook does the conversion.
func ByteSizeDecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			size, err := bytesize.Parse(v)
			if err != nil {
				return nil, err
			}
			return ByteSize(size), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		default:
			return nil, fmt.Errorf("unsupported byte size type %T", data)
		}
	}
}
