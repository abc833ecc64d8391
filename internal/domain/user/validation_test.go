package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.Com "))
}

func TestValidEmail(t *testing.T) {
	for _, ok := range []string{"a@x.com", "first.last@mail.example.org"} {
		assert.True(t, ValidEmail(ok), ok)
	}
	for _, bad := range []string{"", "a", "a@", "@x.com", "a@localhost", "Name <a@x.com>"} {
		assert.False(t, ValidEmail(bad), bad)
	}
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "x.com", EmailDomain("a@X.com"))
	assert.Equal(t, "", EmailDomain("nope"))
}

func TestNormalizeFullName(t *testing.T) {
	name, ok := NormalizeFullName("  Ada   Lovelace ")
	assert.True(t, ok)
	assert.Equal(t, "Ada Lovelace", name)

	_, ok = NormalizeFullName("Ada")
	assert.False(t, ok)
}

func TestValidAge(t *testing.T) {
	assert.False(t, ValidAge(2))
	assert.True(t, ValidAge(3))
	assert.True(t, ValidAge(120))
	assert.False(t, ValidAge(121))
}

func TestNormalizeInterests(t *testing.T) {
	got := NormalizeInterests([]string{" recycling", "", "cycling", "recycling ", "  "})
	assert.Equal(t, []string{"recycling", "cycling"}, got)
	assert.Empty(t, NormalizeInterests(nil))
}

func TestValidationError(t *testing.T) {
	var verr ValidationError
	require.NoError(t, verr.OrNil())

	verr.Add("email", "invalid")
	verr.Add("email", "ignored")
	verr.Add("age", "out of range")
	err := verr.OrNil()
	require.Error(t, err)
	assert.Equal(t, "validation failed: age: out of range; email: invalid", err.Error())
}
