// Package config loads the wrtpresence YAML configuration file.
//
// The file lists the routers and access points to poll. It is stored in a
// platform-appropriate location unless --config or WRTPRESENCE_CONFIG
// points elsewhere:
//   - Linux: $XDG_CONFIG_HOME/wrtpresence/config.yaml or $HOME/.config/wrtpresence/config.yaml
//   - macOS: $HOME/.config/wrtpresence/config.yaml
//   - Windows: %LOCALAPPDATA%\wrtpresence\config.yaml
//
// # Example
//
//	version: 1
//	scan:
//	  min_interval: 5s
//	  http_timeout: 4s
//	devices:
//	  main:
//	    host: 192.168.1.1
//	    username: root
//	    ssh_key: ~/.ssh/router
//	    protocol: ssh
//	    aps: [192.168.1.2]
//
// # Validation
//
// Load applies defaults and then validates. Every problem (missing host,
// password together with ssh_key, unknown protocol) is returned as a
// wrt configuration error so callers can tell it apart from network
// failures. The file contains credentials and is saved with mode 0600.
package config
