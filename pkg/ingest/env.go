package ingest

// assemble attaches the materialized body and fills in the fixed
// process-model entries. Keys the parse already produced are never
// overwritten, and nothing here performs IO.
func assemble(env map[string]any, body Body, opts Options) {
	env[KeyInput] = body
	setDefault(env, KeyErrors, opts.errorSink())
	setDefault(env, KeyMultithread, true)
	setDefault(env, KeyMultiprocess, false)
	setDefault(env, KeyRunOnce, false)
	setDefault(env, KeyVersion, EnvVersion)
	setDefault(env, KeyScriptName, "")
	setDefault(env, KeyServerSoftware, opts.serverSoftware())
}

func setDefault(env map[string]any, key string, val any) {
	if _, ok := env[key]; !ok {
		env[key] = val
	}
}
