package proxmox

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ClusterStatusEntry is one row of `pvesh get cluster/status`. Only
// entries with Type == "node" are cluster members; other rows describe
// the cluster itself.
type ClusterStatusEntry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// HAStatus is the parsed shape of
// `pvesh get cluster/ha/status/manager_status`. NodeModes is keyed by the
// raw hostname string Proxmox reports, with no normalization — Proxmox
// itself escapes dots in these keys, and this client does not attempt to
// undo that escaping.
type HAStatus struct {
	NodeModes map[string]string
}

type haManagerStatusRaw struct {
	ManagerStatus struct {
		NodeStatus map[string]string `json:"node_status"`
	} `json:"manager_status"`
}

// ModeUnknown is the HA manager's convention for a node it cannot
// currently observe; OfflineCount treats it as offline.
const ModeUnknown = "unknown"

func parseHAStatus(raw []byte) (HAStatus, error) {
	var parsed haManagerStatusRaw
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return HAStatus{}, err
	}
	if parsed.ManagerStatus.NodeStatus == nil {
		return HAStatus{NodeModes: map[string]string{}}, nil
	}
	return HAStatus{NodeModes: parsed.ManagerStatus.NodeStatus}, nil
}

// OfflineCount is the number of nodes HA reports in ModeUnknown.
func (s HAStatus) OfflineCount() int {
	n := 0
	for _, mode := range s.NodeModes {
		if mode == ModeUnknown {
			n++
		}
	}
	return n
}

// Mode returns the HA-reported mode for host, or ModeUnknown if HA has no
// opinion about it at all.
func (s HAStatus) Mode(host string) string {
	if mode, ok := s.NodeModes[host]; ok {
		return mode
	}
	return ModeUnknown
}

// Guest is one row from `nodes/<host>/lxc` or `nodes/<host>/qemu`,
// filtered by the caller to Status != "stopped".
type Guest struct {
	VMID   flexInt `json:"vmid"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
}

// Task is one row from `nodes/<host>/tasks --source=active`.
type Task struct {
	UPID   string `json:"upid"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// flexInt accepts both a JSON number and a numeric string, for fields
// Proxmox has been known to render inconsistently across versions.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*n = flexInt(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}
