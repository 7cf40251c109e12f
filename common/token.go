package common

import (
	"strings"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
)

// GenToken returns a fresh job token of the form "<prefix>-<uuid>", prefix
// lowercased. Drivers that track their own processes hand these out so a
// token in the logs names the backend it came from.
func GenToken(prefix string) string {
	id, err := uuid.NewV4()
	if err != nil {
		// NewV4 reads crypto/rand, which only fails on a broken host.
		panic(errors.Wrap(err, "generating job token"))
	}
	return strings.ToLower(prefix) + "-" + id.String()
}
