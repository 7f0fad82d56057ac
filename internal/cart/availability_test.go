package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableSubtractsClaimedQuantity(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, 5, ProductAvailable(productP(), l))

	require.NoError(t, l.Add(ProductItem(productP()), 3))
	assert.Equal(t, 2, ProductAvailable(productP(), l))

	shrunk := productP()
	shrunk.StockOnHand = 1
	assert.Equal(t, 0, ProductAvailable(shrunk, l))
}

func TestServicesAreUnconstrained(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Add(ServiceItem(serviceS()), 40))
	assert.Equal(t, Unlimited, Available(ServiceItem(serviceS()), l))
}

func TestAvailableWithoutLedger(t *testing.T) {
	assert.Equal(t, 5, ProductAvailable(productP(), nil))
}
