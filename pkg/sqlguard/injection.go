package sqlguard

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
)

// InjectionError reports a bound parameter whose text libinjection
// fingerprints as SQL. It unwraps to apperrors.ErrUnsafeQuery.
type InjectionError struct {
	Param       string // "$1", "$2", ...
	Fingerprint string
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("%s: parameter %s matches injection fingerprint %s",
		apperrors.ErrUnsafeQuery, e.Param, e.Fingerprint)
}

func (e *InjectionError) Unwrap() error { return apperrors.ErrUnsafeQuery }

// checkParameters runs libinjection over every string parameter, including
// strings inside slices. Other types are bound by the driver and cannot
// change the statement.
func checkParameters(params []any) error {
	for i, param := range params {
		name := fmt.Sprintf("$%d", i+1)
		for _, s := range parameterStrings(param) {
			if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
				return &InjectionError{Param: name, Fingerprint: string(fingerprint)}
			}
		}
	}
	return nil
}

func parameterStrings(param any) []string {
	switch v := param.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		var out []string
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
