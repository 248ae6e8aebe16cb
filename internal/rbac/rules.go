package rbac

// Default policy. Students interact with their own content and exams;
// admins administer catalog, exams and users.
var RolePermissions = map[string][]string{
	"student": {
		"catalog:view",
		"lesson:play",
		"progress:view-own",
		"exam:take",
		"attempt:view-own",
		"billing:order",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
