package pgqueue

var CeilMillis = ceilMillis
