// Package config loads the reduction configuration.
//
// # Configuration Sources
//
// Values are layered in this order, later sources winning:
//
//	1. Default() (the MoProMa rig)
//	2. a YAML file passed to Load
//	3. environment variables prefixed MOPROMA_
//
// Environment names follow the struct nesting, for example:
//
//	MOPROMA_SERVER_PORT=9090
//	MOPROMA_LOGGING_LEVEL=debug
//	MOPROMA_PATHS_DATA_DIR=/srv/moproma/data
//	MOPROMA_REDUCTION_CHORD=0.7
//	MOPROMA_REDUCTION_WALL_ENABLED=false
//
// Channel groups and the wake rake layout are structured lists and can only
// be set in the YAML file.
//
// # Validation
//
// The merged configuration is validated with go-playground/validator struct
// tags plus a few cross-field rules (unique group names, a loadable time
// zone, rake exclusions in range). Failures are CONFIG application errors.
package config
