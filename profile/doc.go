// Package profile manages the on-disk profile data of PGO and BOLT runs.
//
// Profiles live under a root directory, normally the cargo target directory,
// in one subdirectory per profiling [Kind] and one per build target:
//
//	{root}/pgo-profiles/{target}/*.profraw
//	{root}/pgo-profiles/{target}/merged-<blake3>.profdata
//	{root}/bolt-profiles/{target}/*.fdata
//	{root}/bolt-profiles/{target}/merged.profdata
//
// Instrumented programs write shards into these directories. A [Merger]
// combines them with llvm-profdata or merge-fdata. Merged PGO profiles are
// named after a hash of their content, so that any cache keyed on the
// profile path is invalidated when the profile changes.
//
// The directories are the only state kept between runs. Two merges for the
// same target must not run concurrently.
//
// Use [Config.RegisterFlags] to add the --profiles-dir flag:
//
//	cfg := profile.NewConfig()
//	cfg.RegisterFlags(rootCmd.PersistentFlags())
//	layout := profile.NewLayout(targetDir, cfg.ProfilesDir)
package profile
