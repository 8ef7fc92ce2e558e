package sqlutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullStringRoundTrip(t *testing.T) {
	require.False(t, ToNullString("").Valid)
	require.Equal(t, "fallback", FromNullString(ToNullString(""), "fallback"))
	require.Equal(t, "admin", FromNullString(ToNullString("admin"), "fallback"))
}

func TestNullRawMessage(t *testing.T) {
	tests := []struct {
		name      string
		in        json.RawMessage
		wantValid bool
	}{
		{name: "nil", in: nil, wantValid: false},
		{name: "json_null", in: json.RawMessage("null"), wantValid: false},
		{name: "object", in: json.RawMessage(`{"auctionId":"a1"}`), wantValid: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ToNullRawMessage(tc.in)
			require.Equal(t, tc.wantValid, got.Valid)
			if tc.wantValid {
				require.JSONEq(t, string(tc.in), string(FromNullRawMessage(got)))
			} else {
				require.Nil(t, FromNullRawMessage(got))
			}
		})
	}
}
