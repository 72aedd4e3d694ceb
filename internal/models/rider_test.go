package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStablePhone(t *testing.T) {
	require.Equal(t, "13900000000", StablePhone(""))
	// 'A' = 65
	require.Equal(t, "13900000065", StablePhone("A"))
	require.Len(t, StablePhone("王明"), 11)
	require.Equal(t, StablePhone("王明"), StablePhone("王明"))
}

func TestResolveWindow(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	w := ResolveWindow(now, nil, nil)
	require.Equal(t, Window{Start: 1_000_000 - 7*86400, End: 1_000_000}, w)
	require.Equal(t, 7, w.Days())

	s, e := int64(10), int64(20)
	require.Equal(t, Window{Start: 10, End: 20}, ResolveWindow(now, &s, &e))
	// только одна граница: окно по умолчанию
	require.Equal(t, w, ResolveWindow(now, &s, nil))

	require.True(t, Window{Start: 10, End: 20}.Contains(10))
	require.True(t, Window{Start: 10, End: 20}.Contains(20))
	require.False(t, Window{Start: 10, End: 20}.Contains(21))
}

func TestNormalizeOrderStatus(t *testing.T) {
	require.Equal(t, OrderStatusDelivered, NormalizeOrderStatus("已送达"))
	require.Equal(t, OrderStatusInTransit, NormalizeOrderStatus(" in_transit "))
	require.Equal(t, "weird", NormalizeOrderStatus("weird"))

	for _, st := range OrderStatuses {
		require.Equal(t, st, NormalizeOrderStatus(StatusLabel(st)))
	}
	require.Equal(t, "weird", StatusLabel("weird"))
}

func TestOrder_DeliveredAndOnTime(t *testing.T) {
	d, e := int64(5), int64(5)
	o := Order{Status: OrderStatusInTransit, DeliveredTS: &d, EtaTS: &e}
	require.True(t, o.IsDelivered())
	require.True(t, o.IsOnTime())

	o2 := Order{Status: OrderStatusDelivered}
	require.True(t, o2.IsDelivered())
	require.False(t, o2.IsOnTime())
}

func TestOrder_ZeroTimestampsAreAbsent(t *testing.T) {
	zero, eta := int64(0), int64(10)
	o := Order{Status: OrderStatusInTransit, PickupTS: &zero, DeliveredTS: &zero, EtaTS: &zero}
	require.False(t, o.IsDelivered())
	require.False(t, o.IsOnTime())

	o.EtaTS = &eta
	o.DropZeroTimestamps()
	require.Nil(t, o.PickupTS)
	require.Nil(t, o.DeliveredTS)
	require.Equal(t, &eta, o.EtaTS)
}

func TestInvalid(t *testing.T) {
	err := Invalid("name %s", "required")
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, "name required", err.Error())
}
