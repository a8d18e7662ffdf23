package types

// TestingTB is the part of testing.TB the fixtures need. Accepting an interface lets
// the fixtures run under other test runners that provide the same methods.
type TestingTB interface {
	Cleanup(func())
	Fail()
	FailNow()
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Name() string
	Skip(args ...interface{})
}
