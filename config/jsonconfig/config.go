package jsonconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/ice"
)

// Schema holds the different Implementations's the client wants to configure
type Schema map[string]Implementations

// EmptySchema returns an empty Schema, needed if you don't allow configuration
func EmptySchema() Schema {
	return map[string]Implementations{}
}

// Implementations maps the the names of implementations to the Implementation
// As a special case, "" maps to a default implementation that will not be unmarshal'ed,
// and so the Implementation will be used as-is.
type Implementations map[string]Implementation

type Implementation interface {
	// The Implementation needs to do 3 things:
	// 1) parse the JSON config
	// 2) add the relevant providers to the ice MagicBag
	// 3) print its configuration
	// 1 & 3 are handled implicitly by json.(Un)marshal
	// 2 is handled by being an ice Module
	ice.Module
}

type Configuration map[string]ice.Module

// Configuration is itself a Module, that installs each Impl as a Module
// (in Design Patterns terminology, it's a Composite)
func (c Configuration) Install(bag *ice.MagicBag) {
	for _, v := range c {
		bag.InstallModule(v)
	}
}

var emptyJson = []byte("{}")

func (schema Schema) Parse(text []byte) (Configuration, error) {
	var parsedConfig map[string]json.RawMessage
	if len(text) == 0 {
		text = emptyJson
	}
	err := json.Unmarshal(text, &parsedConfig)
	if err != nil {
		return nil, fmt.Errorf("Couldn't parse top-level config: %v", err)
	}
	for optionName := range parsedConfig {
		if _, ok := schema[optionName]; !ok {
			return nil, fmt.Errorf("Unknown config section %q", optionName)
		}
	}
	log.Debugf("config parsed to: %+v", parsedConfig)

	result := Configuration(make(map[string]ice.Module))
	// Parse each option (aka Implementations, which isn't a valid variable name)
	for optionName, impls := range schema {
		optionText := parsedConfig[optionName]
		// Parse this Implementations's JSON just enough to get the type
		implName, err := parseType(optionText)
		if err != nil {
			return nil, fmt.Errorf("Error parsing type for Implementations %v: %v", optionName, err)
		}
		impl, ok := impls[implName]
		if !ok {
			return nil, fmt.Errorf("Error parsing Implementations %v: %q is not a valid Implementation (have %v)", optionName, implName, implNames(impls))
		}
		if len(optionText) > 0 {
			// Now parse it fully, with the right Implementation
			err = json.Unmarshal(optionText, &impl)
			if err != nil {
				return nil, fmt.Errorf("Error parsing variable %v: %v", optionName, err)
			}
		}
		result[optionName] = impl
	}
	return result, nil
}

// Find the type, which is simply the string value for the key "Type"
func parseType(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var t struct{ Type string }
	err := json.Unmarshal(data, &t)
	if err != nil {
		return "", err
	}
	return t.Type, nil
}

func implNames(impls Implementations) []string {
	var names []string
	for n := range impls {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// GetConfigText finds the right text for a configFlag.
// If configFlag starts with '{' it is the literal json text.
// Otherwise it names a file, which is read.
func GetConfigText(configFlag string) ([]byte, error) {
	trimmed := strings.TrimSpace(configFlag)
	if trimmed == "" || strings.HasPrefix(trimmed, "{") {
		log.Debugf("using config flag as JSON config: %v", configFlag)
		return []byte(trimmed), nil
	}
	log.Infof("reading config file %v", trimmed)
	configText, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("Error Loading Config File %v: %v", trimmed, err)
	}
	return configText, nil
}
