package log

import "github.com/go-viper/mapstructure/v2"

// decodeOptions decodes an appender's freeform Options map into a typed
// options struct, the same decoder viper uses internally to populate typed
// config structs from its key/value tree.
func decodeOptions(raw map[string]interface{}, out interface{}) error {
	if raw == nil {
		return nil
	}
	return mapstructure.Decode(raw, out)
}
