// Package confloader loads configuration with koanf.
//
// Sources, lowest to highest priority:
//
//  1. Defaults (the target struct as passed to Load)
//  2. YAML configuration file
//  3. Environment variables (PAIRMESH_ prefix)
//
// Environment names are matched against the known configuration keys, so
// PAIRMESH_SESSION_BASE_DIR resolves to session.base_dir rather than
// session.base.dir. Watcher reports changes to the configuration file.
package confloader
