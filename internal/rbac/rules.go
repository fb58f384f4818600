package rbac

const (
	PermStandardsRead  = "standards:read"
	PermStandardsWrite = "standards:write"
	PermResultsRead    = "results:read"
	PermResultsRecord  = "results:record"
	PermStudentsRead   = "students:read"
	PermStudentsWrite  = "students:write"
	PermClassesPromote = "classes:promote"
	PermSummaryAny     = "summary:view-all" // any student the teacher teaches
	PermSummaryOwn     = "summary:view-own"
	PermImport         = "import:run"
	PermAccount        = "account:password"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermStandardsRead,
		PermSummaryOwn,
		PermAccount,
	},
	"teacher": {
		"standards:*",
		"results:*",
		"students:*",
		PermClassesPromote,
		PermSummaryAny,
		PermImport,
		PermAccount,
	},
	"admin": {
		"*",
	},
}
