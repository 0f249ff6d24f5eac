/*
Package config decodes the control plane's own process configuration and
each instance's declarative config.toml, both via
github.com/pelletier/go-toml/v2, keeping one small struct per on-disk TOML
file rather than a generic map.
*/
package config
