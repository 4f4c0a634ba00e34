package generation

import "strings"

// Per-product credit cost of one generation.
var productCosts = map[string]int64{
	"dires_gen_image":    10,
	"dires_gen_image_hd": 20,
	"dires_gen_upscale":  5,
	"dires_gen_video":    50,
}

// DefaultCost applies to generation products not in the cost table.
const DefaultCost int64 = 10

// CostFor returns the credit cost of one generation for the given product.
func CostFor(productID string) int64 {
	if cost, ok := productCosts[strings.ToLower(strings.TrimSpace(productID))]; ok {
		return cost
	}
	return DefaultCost
}
