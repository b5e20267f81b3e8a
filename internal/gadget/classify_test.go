package gadget

import (
	"reflect"
	"testing"
)

func TestClassifyTable(t *testing.T) {
	all := map[string]bool{
		ClusterOnOff:       true,
		ClusterBinaryInput: true,
		ClusterIlluminance: true,
		ClusterTemperature: true,
		ClusterHumidity:    true,
		ClusterIASZone:     true,
	}

	tests := []struct {
		code int
		want []Type
	}{
		{0, []Type{Switch}},
		{1, []Type{Switch}},
		{259, []Type{Switch}},
		{260, []Type{Switch}},
		{261, []Type{Switch}},
		{12, []Type{Illuminance}},
		{81, []Type{Plug}},
		{256, []Type{Light}},
		{257, []Type{Light}},
		{258, []Type{Light}},
		{770, []Type{Temperature, Humidity}},
		{1026, []Type{Pir}},
		{1027, []Type{Buzzer}},
		{9999, nil},
	}

	for _, tt := range tests {
		descs := Classify(tt.code, all)
		var got []Type
		for _, d := range descs {
			got = append(got, d.Type)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Classify(%d) = %v, want %v", tt.code, got, tt.want)
		}
		if known := KnownDeviceType(tt.code); known != (tt.want != nil) {
			t.Errorf("KnownDeviceType(%d) = %v", tt.code, known)
		}
	}
}

func TestClassifyRequiresCluster(t *testing.T) {
	if got := Classify(81, map[string]bool{ClusterIASZone: true}); len(got) != 0 {
		t.Errorf("plug without genOnOff: got %v, want none", got)
	}

	got := Classify(770, map[string]bool{ClusterHumidity: true})
	if len(got) != 1 || got[0].Type != Humidity {
		t.Errorf("770 with humidity only: got %v", got)
	}

	got = Classify(770, map[string]bool{ClusterTemperature: true, ClusterHumidity: true})
	if len(got) != 2 {
		t.Fatalf("770 with both clusters: %d descriptors, want 2", len(got))
	}
}

func TestClassifyStable(t *testing.T) {
	clusters := map[string]bool{ClusterHumidity: true, ClusterTemperature: true}
	first := Classify(770, clusters)
	for i := 0; i < 50; i++ {
		if got := Classify(770, clusters); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v, want %v", i, got, first)
		}
	}
}
