package cargo

// ArtifactKind classifies a compiled artifact.
type ArtifactKind int

const (
	// KindOther is any artifact cargo-pgo has no specific label for.
	KindOther ArtifactKind = iota
	// KindBinary is a bin target.
	KindBinary
	// KindBenchmark is a bench target.
	KindBenchmark
	// KindExample is an example target.
	KindExample
	// KindTest is a test harness, either an integration test or the unit
	// tests of a library.
	KindTest
	// KindLibrary is any library crate type.
	KindLibrary
)

// String returns a user-facing label, e.g. "binary".
func (k ArtifactKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindBenchmark:
		return "benchmark"
	case KindExample:
		return "example"
	case KindTest:
		return "test"
	case KindLibrary:
		return "library"
	case KindOther:
	}

	return "artifact"
}

// Artifact is a compilation unit reported by cargo.
type Artifact struct {
	// PackageID is cargo's opaque package identifier.
	PackageID string
	// Target is the logical target name, e.g. the binary name.
	Target string
	// Executable is the absolute path of the produced executable, or empty
	// when the artifact is not executable.
	Executable string
	// Filenames lists every file produced for the unit.
	Filenames []string
	Kind      ArtifactKind
	// Fresh is true when cargo reused a previous build.
	Fresh bool
}

func kindFromTarget(kinds []string, test bool) ArtifactKind {
	for _, kind := range kinds {
		switch kind {
		case "bin":
			return KindBinary
		case "bench":
			return KindBenchmark
		case "example":
			return KindExample
		case "test":
			return KindTest
		case "lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro":
			if test {
				return KindTest
			}

			return KindLibrary
		}
	}

	return KindOther
}
