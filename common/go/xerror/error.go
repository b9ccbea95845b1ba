package xerror

// Unwrap returns t, panicking if e is not nil.
//
// Intended for fixtures where a failure is a programming error, for example
// parsing literal MAC or IP addresses in tests.
func Unwrap[T any](t T, e error) T {
	if e != nil {
		panic(e)
	}
	return t
}
