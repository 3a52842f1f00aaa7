package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestPriceToMinorUnits(t *testing.T) {
	// 19.99 and 4.10 have no exact float64 representation; a plain
	// int64 cast of price*100 would yield 1998 and 409.
	cases := []struct {
		price float64
		want  int64
	}{
		{0, 0},
		{4.10, 410},
		{9.99, 999},
		{19.99, 1999},
		{29.99, 2999},
		{100, 10000},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, priceToMinorUnits(tc.price), "price %v", tc.price)
	}
}

func expiredSessionEvent(t *testing.T, sessionID string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"id": sessionID})
	require.NoError(t, err)
	return stripe.Event{
		ID:   "evt_expired_1",
		Type: "checkout.session.expired",
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestParseSessionExpired(t *testing.T) {
	sessionID, handled, err := ParseSessionExpired(expiredSessionEvent(t, "cs_test_expired"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "cs_test_expired", sessionID)
}

func TestParseSessionExpired_IgnoresOtherEventTypes(t *testing.T) {
	event := stripe.Event{
		ID:   "evt_other",
		Type: "invoice.created",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	_, handled, err := ParseSessionExpired(event)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestParseSessionExpired_MissingID(t *testing.T) {
	_, handled, err := ParseSessionExpired(expiredSessionEvent(t, ""))
	assert.True(t, handled)
	assert.Error(t, err)
}
