/*
Jsonconfig implements configuration, reading json into an ice Module.

To use:

1) Create the Schema. List your configurable Implementations. Each Implementations
can be backed by several named Implementations.
 2. Options.Parse parses bytes and creates a Configuration.
    a) for each Implementations, pick which Implementation.
    b) json.Unmarshal the json into that Implementation
    c) Implementation can now be used as a Module or json.Marshal'ed to print its configuration
 3. Configuration is an ice Module that installs each Implementation

Example:
1) Create the Schema

	schema := jsonconfig.Schema(map[string]jsonconfig.Implementations{
	 "Driver": {
	  "local": &LocalDriverConfig{},
	  "rsh": &RemoteShellDriverConfig{},
	  "": &LocalDriverConfig{Type: "local"},
	 },
	 "Queue": {
	  "default": &QueueConfig{},
	 }
	}

2) Parse

	mod, _ := schema.Parse([]byte(`{
	 "Driver": {
	  "Type": "rsh",
	  "Hosts": ["be-1:4", "be-2:4"]
	 },
	 "Queue": {
	  "Type": "default",
	  "PollInterval": "2s"
	 }
	}`)

3) Install the Configuration

bag.InstallModule(mod)

Sections missing from the text use the "" Implementation; sections the Schema
does not know are an error.
*/
package jsonconfig
