package cargo

import "strings"

// Args is the result of filtering user-supplied cargo arguments with
// [ParseArgs].
type Args struct {
	// Filtered holds the arguments that are forwarded to cargo, in order.
	Filtered []string
	// Stripped lists the flags that were removed because cargo-pgo always
	// supplies them itself.
	Stripped []string
	// Selected lists the values of target selectors (--bin, --example,
	// --bench, --package/-p) in the order they were given.
	Selected []string
	// Target is the value of --target, if any.
	Target string
	// TargetDir is the value of --target-dir, if any.
	TargetDir string
	// ManifestPath is the value of --manifest-path, if any.
	ManifestPath string
	// HasTarget reports whether --target was given.
	HasTarget bool
	// HasProfile reports whether --profile was given.
	HasProfile bool
}

// selectorFlags are cargo flags whose value names a single build target.
var selectorFlags = []string{"--bin", "--example", "--bench", "--package", "-p"}

// ParseArgs filters cargo arguments supplied by the user.
//
// --release (-r) and --message-format are removed, since cargo-pgo passes
// exactly one value for each. --target, --target-dir, --profile and
// --manifest-path are recorded and forwarded in their two-token form.
// Everything from a literal "--" onwards is forwarded untouched.
func ParseArgs(args []string) Args {
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--":
			parsed.Filtered = append(parsed.Filtered, args[i:]...)
			return parsed

		case "--release", "-r":
			parsed.Stripped = append(parsed.Stripped, "--release")
			continue
		}

		if _, _, n := KeyValue("--message-format", args[i:]); n > 0 {
			parsed.Stripped = append(parsed.Stripped, "--message-format")
			i += n - 1

			continue
		}

		if value, ok, n := KeyValue("--target-dir", args[i:]); n > 0 {
			parsed.TargetDir = value
			parsed.Filtered = appendPair(parsed.Filtered, "--target-dir", value, ok)
			i += n - 1

			continue
		}

		if value, ok, n := KeyValue("--target", args[i:]); n > 0 {
			parsed.HasTarget = true
			parsed.Target = value
			parsed.Filtered = appendPair(parsed.Filtered, "--target", value, ok)
			i += n - 1

			continue
		}

		if value, ok, n := KeyValue("--profile", args[i:]); n > 0 {
			parsed.HasProfile = true
			parsed.Filtered = appendPair(parsed.Filtered, "--profile", value, ok)
			i += n - 1

			continue
		}

		if value, ok, n := KeyValue("--manifest-path", args[i:]); n > 0 {
			parsed.ManifestPath = value
			parsed.Filtered = appendPair(parsed.Filtered, "--manifest-path", value, ok)
			i += n - 1

			continue
		}

		if key, value, ok, n := matchSelector(args[i:]); n > 0 {
			if ok {
				parsed.Selected = append(parsed.Selected, value)
			}

			parsed.Filtered = appendPair(parsed.Filtered, key, value, ok)
			i += n - 1

			continue
		}

		parsed.Filtered = append(parsed.Filtered, arg)
	}

	return parsed
}

// KeyValue matches args[0] against key, accepting both the "--key value" and
// the "--key=value" spelling.
//
// n reports how many leading tokens of args belong to the pair and is zero
// when args[0] is not key. A prefix match such as "--keyextra=value" is not a
// match. ok is false when "--key" is the last token and has no value.
func KeyValue(key string, args []string) (value string, ok bool, n int) {
	if len(args) == 0 || !strings.HasPrefix(args[0], key) {
		return "", false, 0
	}

	arg := args[0]
	if arg == key {
		if len(args) < 2 {
			return "", false, 1
		}

		return args[1], true, 2
	}

	parsedKey, parsedValue, found := strings.Cut(arg, "=")
	if found && parsedKey == key {
		return parsedValue, true, 1
	}

	return "", false, 0
}

func matchSelector(args []string) (key, value string, ok bool, n int) {
	for _, key := range selectorFlags {
		value, ok, n := KeyValue(key, args)
		if n > 0 {
			return key, value, ok, n
		}
	}

	return "", "", false, 0
}

func appendPair(dst []string, key, value string, ok bool) []string {
	dst = append(dst, key)
	if ok {
		dst = append(dst, value)
	}

	return dst
}
