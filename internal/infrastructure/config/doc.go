// Package config loads thingd and thingctl settings from YAML, applies
// THINGS_* environment overrides and validates the result.
//
// Besides the runtime's collaborators (database, MQTT, API, InfluxDB) the
// file declares the Things hosted at startup under things:, each with its
// properties, actions and events. Keep secrets such as the JWT secret and
// broker password in the environment rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
