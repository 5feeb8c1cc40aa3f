package filesec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateExtension(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  string
	}{
		{"photo.jpg", ""},
		{"photo.JPEG", ""},
		{"animation.gif", ""},
		{"modern.webp", ""},
		{"noextension", "no extension"},
		{"payload.exe", "not allowed"},
		{"shell.sh", "not allowed"},
		{"page.php", "not allowed"},
		{"script.js", "not allowed"},
		{"document.pdf", "not an allowed image type"},
		{"archive.zip", "not an allowed image type"},
	}
	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			err := ValidateExtension(tc.filename)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestContainsTraversal(t *testing.T) {
	require.True(t, ContainsTraversal("../../etc/passwd"))
	require.True(t, ContainsTraversal("..\\windows\\system32"))
	require.True(t, ContainsTraversal("%2e%2e%2fconfig"))
	require.True(t, ContainsTraversal("%252e%252e%252fsecret"))
	require.True(t, ContainsTraversal("a/..%2Fb"))
	require.False(t, ContainsTraversal("holiday.photo.jpg"))
	require.False(t, ContainsTraversal("plain-name.png"))
}

func TestValidateAndSanitizePath(t *testing.T) {
	base := t.TempDir()

	resolved, err := ValidateAndSanitizePath(base, "sub/photo.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resolved, base))

	_, err = ValidateAndSanitizePath(base, "../outside.png")
	require.Error(t, err)

	_, err = ValidateAndSanitizePath(base, "bad\x00name.png")
	require.Error(t, err)
}

func TestGenerateSecureFilename(t *testing.T) {
	name := GenerateSecureFilename("My Photo.JPG", "user-42")
	require.NotContains(t, name, "/")
	require.NotContains(t, name, "\\")
	require.True(t, strings.HasSuffix(name, ".jpg"))
	require.LessOrEqual(t, len(name), MaxFilenameLength)

	parts := strings.SplitN(name, "_", 4)
	require.Len(t, parts, 4)
	require.Len(t, parts[0], 8)
}

func TestGenerateSecureFilenameUniquePerCall(t *testing.T) {
	a := GenerateSecureFilename("same.png", "owner")
	b := GenerateSecureFilename("same.png", "owner")
	require.NotEqual(t, a, b)
}

func TestGenerateSecureFilenameStripsTraversal(t *testing.T) {
	name := GenerateSecureFilename("../../../etc/passwd.png", "owner")
	require.False(t, ContainsTraversal(name))
	require.NotContains(t, name, "/")
}

func TestGenerateSecureFilenameLongInput(t *testing.T) {
	long := strings.Repeat("a", 400) + ".png"
	name := GenerateSecureFilename(long, "owner")
	require.LessOrEqual(t, len(name), MaxFilenameLength)
	require.True(t, strings.HasSuffix(name, ".png"))
}

func TestGenerateSecureFilenameEmptyBasename(t *testing.T) {
	name := GenerateSecureFilename("....png", "owner")
	require.True(t, strings.HasSuffix(name, ".png"))
	require.NotContains(t, name, "..")
}
