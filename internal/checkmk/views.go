package checkmk

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// ParseViewTable decodes a view.py json_export table. The first row holds the
// column names, every following row one record.
func ParseViewTable(body []byte) ([]map[string]string, error) {
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding view table: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		header[i] = cellString(col)
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = cellString(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// ParseLiveInfo decodes the allhosts view.
func ParseLiveInfo(body []byte) ([]*domain.LiveInfo, error) {
	records, err := ParseViewTable(body)
	if err != nil {
		return nil, err
	}
	infos := make([]*domain.LiveInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, &domain.LiveInfo{
			HostName:     rec["host"],
			HostState:    rec["host_state"],
			ServicesOK:   rec["num_services_ok"],
			ServicesWarn: rec["num_services_warn"],
			ServicesCrit: rec["num_services_crit"],
		})
	}
	return infos, nil
}

// ParseServices decodes one of the per-host service views.
func ParseServices(body []byte) ([]*domain.ServiceInfo, error) {
	records, err := ParseViewTable(body)
	if err != nil {
		return nil, err
	}
	services := make([]*domain.ServiceInfo, 0, len(records))
	for _, rec := range records {
		services = append(services, &domain.ServiceInfo{
			State:        rec["service_state"],
			Description:  rec["service_description"],
			PluginOutput: rec["svc_plugin_output"],
		})
	}
	return services, nil
}

// ParseMonitoringEvents decodes the notifications view.
func ParseMonitoringEvents(body []byte) ([]*domain.MonitoringEvent, error) {
	records, err := ParseViewTable(body)
	if err != nil {
		return nil, err
	}
	events := make([]*domain.MonitoringEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, &domain.MonitoringEvent{
			Type:     rec["log_type"],
			Message:  rec["log_plugin_output"],
			Time:     rec["log_time"],
			Severity: rec["log_state"],
		})
	}
	return events, nil
}
