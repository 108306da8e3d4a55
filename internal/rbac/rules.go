package rbac

// Default policy for the grading/archiving core.
var RolePermissions = map[string][]string{
	"student": {
		"assignment:list",
	},
	"teacher": {
		"assignment:list",
		"module:archive",
		"module:delete",
		"course:archive",
		"grade:write",
	},
	"admin": {
		"*", // everything
	},
}
