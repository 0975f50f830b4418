package metricsclient

import "k8s.io/apimachinery/pkg/api/resource"

func resourceQuantityMilli(milli int64) *resource.Quantity {
	q := resource.NewMilliQuantity(milli, resource.DecimalSI)
	return q
}

func resourceQuantityMiB(mib int64) *resource.Quantity {
	q := resource.NewQuantity(mib*1024*1024, resource.BinarySI)
	return q
}
