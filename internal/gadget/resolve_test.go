package gadget

import (
	"errors"
	"testing"
)

func TestResolveTemperatureHumidity(t *testing.T) {
	dump := map[string]map[string]any{
		ClusterTemperature: {AttrMeasuredValue: 2350},
		ClusterHumidity:    {AttrMeasuredValue: 8200},
		"genBasic":         {"modelId": "lumi.weather"},
	}

	recs, err := Resolve(1, 770, dump)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	if recs[0].AuxID != "1/Temperature/msTemperatureMeasurement/measuredValue" {
		t.Errorf("auxId[0] = %q", recs[0].AuxID)
	}
	if recs[0].Value != 23.5 {
		t.Errorf("temperature = %v, want 23.5", recs[0].Value)
	}
	if recs[1].AuxID != "1/Humidity/msRelativeHumidity/measuredValue" {
		t.Errorf("auxId[1] = %q", recs[1].AuxID)
	}
	if recs[1].Value != 82.0 {
		t.Errorf("humidity = %v, want 82", recs[1].Value)
	}
}

func TestResolvePirAlarm(t *testing.T) {
	tests := []struct {
		raw  any
		want bool
	}{
		{uint16(0x0001), true},
		{uint16(0x0030), false},
		{float64(33), true},
		{-1, false},
		{float64(0x10001), false},
		{"alarm", false},
		{true, true},
	}
	for _, tt := range tests {
		recs, err := Resolve(3, 1026, map[string]map[string]any{ClusterIASZone: {AttrZoneStatus: tt.raw}})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 || recs[0].Type != Pir {
			t.Fatalf("records = %+v", recs)
		}
		if recs[0].Value != tt.want {
			t.Errorf("zoneStatus %v: value = %v, want %v", tt.raw, recs[0].Value, tt.want)
		}
	}
}

func TestResolveOnOffNormalized(t *testing.T) {
	recs, err := Resolve(12, 81, map[string]map[string]any{ClusterOnOff: {AttrOnOff: float64(1)}})
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].Value != true {
		t.Errorf("plug value = %v, want true", recs[0].Value)
	}
	if recs[0].AuxID != "12/Plug/genOnOff/onOff" {
		t.Errorf("auxId = %q", recs[0].AuxID)
	}
}

func TestResolveUnclassifiable(t *testing.T) {
	_, err := Resolve(1, 4242, map[string]map[string]any{ClusterOnOff: {AttrOnOff: 1}})
	if !errors.Is(err, ErrUnclassifiable) {
		t.Errorf("unknown device type: err = %v, want ErrUnclassifiable", err)
	}

	_, err = Resolve(1, 81, map[string]map[string]any{"genBasic": {}})
	if !errors.Is(err, ErrUnclassifiable) {
		t.Errorf("no matching cluster: err = %v, want ErrUnclassifiable", err)
	}
}

func TestResolveChangeRestrictedToCluster(t *testing.T) {
	recs, err := ResolveChange(1, 770, ClusterHumidity, map[string]any{AttrMeasuredValue: 5100})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Type != Humidity || recs[0].Value != 51.0 {
		t.Errorf("records = %+v", recs)
	}

	recs, err = ResolveChange(1, 770, ClusterHumidity, map[string]any{"tolerance": 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("unrelated attribute: records = %+v, want none", recs)
	}
}
