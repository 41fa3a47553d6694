package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

// VehicleNode is the flattened (:Vehicle) node projection of a vehicle
// aggregate. Derived values are denormalised onto the node so fleet
// dashboards can query them without touching the engine.
type VehicleNode struct {
	VIN             string `json:"vin"`
	Make            string `json:"make"`
	Model           string `json:"model"`
	Year            string `json:"year"`
	LicensePlate    string `json:"license_plate"`
	OverallStatus   string `json:"overall_status"`
	ComplianceScore int    `json:"compliance_score"`
	RiskLevel       string `json:"risk_level"`
	DocumentCount   int    `json:"document_count"`
	ActiveConflicts int    `json:"active_conflicts"`
}

func vehicleNode(v *domain.VehicleRecord) VehicleNode {
	return VehicleNode{
		VIN:             v.VIN,
		Make:            v.Make,
		Model:           v.Model,
		Year:            v.Year,
		LicensePlate:    v.LicensePlate,
		OverallStatus:   string(v.Overall),
		ComplianceScore: v.ComplianceScore,
		RiskLevel:       string(v.Risk),
		DocumentCount:   len(v.Documents),
		ActiveConflicts: len(v.ActiveConflicts),
	}
}

func vehicleNodeToMap(n VehicleNode) map[string]any {
	return map[string]any{
		"vin":              n.VIN,
		"make":             n.Make,
		"model":            n.Model,
		"year":             n.Year,
		"license_plate":    n.LicensePlate,
		"overall_status":   n.OverallStatus,
		"compliance_score": n.ComplianceScore,
		"risk_level":       n.RiskLevel,
		"document_count":   n.DocumentCount,
		"active_conflicts": n.ActiveConflicts,
	}
}

func vehicleNodeFromRecord(rec *neo4j.Record) (VehicleNode, error) {
	node, ok := rec.Values[0].(dbtype.Node)
	if !ok {
		return VehicleNode{}, errNotANode
	}
	return vehicleNodeFromProps(node.Props), nil
}

func vehicleNodeFromProps(props map[string]any) VehicleNode {
	n := VehicleNode{}
	n.VIN, _ = props["vin"].(string)
	n.Make, _ = props["make"].(string)
	n.Model, _ = props["model"].(string)
	n.Year, _ = props["year"].(string)
	n.LicensePlate, _ = props["license_plate"].(string)
	n.OverallStatus, _ = props["overall_status"].(string)
	n.RiskLevel, _ = props["risk_level"].(string)
	n.ComplianceScore = intProp(props["compliance_score"])
	n.DocumentCount = intProp(props["document_count"])
	n.ActiveConflicts = intProp(props["active_conflicts"])
	return n
}

// Neo4j returns integers as int64.
func intProp(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

func documentToMap(d *domain.DocumentRecord) map[string]any {
	return map[string]any{
		"id":              d.ID,
		"file_name":       d.FileName,
		"document_type":   string(d.Type),
		"vin":             d.VIN,
		"confidence":      d.Confidence,
		"status":          string(d.Status),
		"effective_date":  d.EffectiveDate,
		"expiration_date": d.ExpirationDate,
		"issue_date":      d.IssueDate,
		"source":          d.Source,
		"uploaded_at":     d.UploadedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func conflictToMap(c *domain.Conflict) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"type":        string(c.Type),
		"severity":    string(c.Severity),
		"description": c.Description,
		"resolved":    c.Resolved,
		"detected_at": c.DetectedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
