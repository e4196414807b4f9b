package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resultPage mimics the factordb result table: one row with a status cell
// and the factorization rendered as index.php?id= links.
func resultPage(status, query, factorization string) string {
	return fmt.Sprintf(`<html><body><table>
<tr><td>id</td><td>status</td><td>number</td></tr>
<tr><td><a href="index.php?id=1100000000">1100000000</a></td>
<td>%s</td>
<td><a href="index.php?id=1100000001">%s</a> = %s</td></tr>
</table></body></html>`, status, query, factorization)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestLookup_FullyFactored(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8633", r.URL.Query().Get("query"))
		fmt.Fprint(w, resultPage("FF", "8633",
			`<a href="index.php?id=2">89</a> · <a href="index.php?id=3">97</a>`))
	})

	res, err := client.Lookup(context.Background(), "8633")
	require.NoError(t, err)
	assert.Equal(t, StatusFullyFactored, res.Status)
	assert.Equal(t, []string{"89", "97"}, res.Factors)
}

func TestLookup_RepeatedFactorExponent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultPage("FF", "7921",
			`<a href="index.php?id=2">89</a><sup>2</sup>`))
	})

	res, err := client.Lookup(context.Background(), "7921")
	require.NoError(t, err)
	assert.Equal(t, StatusFullyFactored, res.Status)
	assert.Equal(t, []string{"89", "89"}, res.Factors)
}

func TestLookup_CaretExponent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultPage("FF", "7921",
			`<a href="index.php?id=2">89^2</a>`))
	})

	res, err := client.Lookup(context.Background(), "7921")
	require.NoError(t, err)
	assert.Equal(t, []string{"89", "89"}, res.Factors)
}

func TestLookup_CompositeNoFactors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultPage("C", "8633", ""))
	})

	res, err := client.Lookup(context.Background(), "8633")
	require.NoError(t, err)
	assert.Equal(t, StatusComposite, res.Status)
	assert.Empty(t, res.Factors)
}

func TestLookup_Prime(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultPage("P", "104729", ""))
	})

	res, err := client.Lookup(context.Background(), "104729")
	require.NoError(t, err)
	assert.Equal(t, StatusPrime, res.Status)
	assert.Empty(t, res.Factors)
}

func TestLookup_TruncatedFactorsDiscarded(t *testing.T) {
	// Long factors render as "123456...654321"; the digits are unrecoverable
	// so the factorization must not be trusted.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultPage("FF", "251959084756578934940271832400483985714292821262040320277771378360436620207075955562640185258807844069182906412495150821892985591491761845028084891200728449926873928072877767359714183472702618963750149718246911650776133798590957000973304597488084284017974291006424586918171951187461215151726546322822168699875491824224336372590851418654620435767984233871847744479207399342365848238242811981638150106748104516603773060562016196762561338441436038339044149526344321901146575444541784240209246165157233507787077498171257724679629263863563732899121548314381678998850404453640235273819513786365643912120103971228221207202",
			`<a href="index.php?id=2">3348890...6688873</a> · <a href="index.php?id=3">7524766...6188117</a>`))
	})

	res, err := client.Lookup(context.Background(), "251959084756578934940271832400483985714292821262040320277771378360436620207075955562640185258807844069182906412495150821892985591491761845028084891200728449926873928072877767359714183472702618963750149718246911650776133798590957000973304597488084284017974291006424586918171951187461215151726546322822168699875491824224336372590851418654620435767984233871847744479207399342365848238242811981638150106748104516603773060562016196762561338441436038339044149526344321901146575444541784240209246165157233507787077498171257724679629263863563732899121548314381678998850404453640235273819513786365643912120103971228221207202")
	require.NoError(t, err)
	assert.Equal(t, StatusFullyFactored, res.Status)
	assert.Empty(t, res.Factors)
}

func TestLookup_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	res, err := client.Lookup(context.Background(), "8633")
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "HTTP status 500")
}

func TestLookup_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Lookup(ctx, "8633")
	assert.Error(t, err)
}

func TestSplitExponent(t *testing.T) {
	tests := []struct {
		in     string
		base   string
		repeat int
	}{
		{"89", "89", 1},
		{"89^2", "89", 2},
		{"89^0", "89", 1},
		{"89^x", "89", 1},
	}

	for _, tt := range tests {
		base, repeat := splitExponent(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.repeat, repeat, tt.in)
	}
}
