package generation

import "testing"

func TestCostFor(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "dires_gen_image", want: 10},
		{in: "DIRES_GEN_IMAGE_HD", want: 20},
		{in: " dires_gen_video ", want: 50},
		{in: "dires_gen_upscale", want: 5},
		{in: "something_new", want: DefaultCost},
		{in: "", want: DefaultCost},
	}

	for _, tt := range tests {
		if got := CostFor(tt.in); got != tt.want {
			t.Fatalf("CostFor(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
