package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextStripsAllMarkup(t *testing.T) {
	require.Equal(t, "Login broken", Text("<b>Login</b> broken"))
	// StrictPolicy drops script elements together with their content.
	require.Equal(t, "", Text("<script>alert(1)</script>"))
	require.Equal(t, "plain", Text("plain"))
}

func TestHTMLKeepsSafeFormatting(t *testing.T) {
	require.Equal(t, "<p>steps to <b>reproduce</b></p>", HTML("<p>steps to <b>reproduce</b></p>"))
	require.NotContains(t, HTML(`<a href="x" onclick="evil()">link</a>`), "onclick")
	require.NotContains(t, HTML("<script>alert(1)</script><em>ok</em>"), "script")
}
