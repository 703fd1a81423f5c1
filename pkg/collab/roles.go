package collab

import "github.com/clinsight-ai/insight/pkg/common/models"

// teamRoles is the fixed catalog of roles that can own alerts, receive
// notifications, and be @mentioned in comments.
var teamRoles = []models.TeamRole{
	{Code: "cra", Name: "Clinical Research Associate"},
	{Code: "dm", Name: "Data Manager"},
	{Code: "safety", Name: "Safety Reviewer"},
	{Code: "qa", Name: "Quality Assurance"},
	{Code: "coder", Name: "Medical Coder"},
	{Code: "pm", Name: "Project Manager"},
	{Code: "monitor", Name: "Site Monitor"},
	{Code: "stat", Name: "Biostatistician"},
}

var roleNames = func() map[string]string {
	names := make(map[string]string, len(teamRoles))
	for _, role := range teamRoles {
		names[role.Code] = role.Name
	}
	return names
}()

// Roles returns the role catalog in its canonical order.
func Roles() []models.TeamRole {
	out := make([]models.TeamRole, len(teamRoles))
	copy(out, teamRoles)
	return out
}

// ValidRole reports whether code names a catalog role.
func ValidRole(code string) bool {
	_, ok := roleNames[code]
	return ok
}
