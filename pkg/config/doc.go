// Package config loads the gateway's provider/instance/routing
// configuration from a YAML file and keeps a core.Registry in sync with
// it via an fsnotify watch. A single file shape feeds core.InstanceConfig
// and core.RoutingRule directly, in place of a layered, globally-singleton
// Config struct with providers/policy/evidence/proxy/security sections —
// this module has no policy, evidence, or TLS-termination surface for
// those sections to describe.
package config
