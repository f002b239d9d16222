// Package sandboxcfg resolves the WASM sandbox's environment-variable
// surface (spec §6.6): RIPTIDE_WASM_PATH and RIPTIDE_WASM_CACHE_DIR.
// SPIDER_ENABLE and REQUIRE_AUTH belong to the out-of-scope API/CLI
// layer and are not read here.
package sandboxcfg

import "os"

// WASMPath returns $RIPTIDE_WASM_PATH.
func WASMPath() string {
	return os.Getenv("RIPTIDE_WASM_PATH")
}

// CacheDir returns $RIPTIDE_WASM_CACHE_DIR, or "" to let the sandbox fall
// back to the platform default cache directory.
func CacheDir() string {
	return os.Getenv("RIPTIDE_WASM_CACHE_DIR")
}
