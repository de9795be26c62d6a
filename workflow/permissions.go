package workflow

import "governance-api/domain"

// CanManageStatus reports whether actor may initiate a status transition on
// task.
func CanManageStatus(task domain.Task, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RoleMasterAdmin:
		return true
	case domain.RoleAdmin:
		if task.DepartmentID == "" && actor.DepartmentID == "" {
			return true
		}
		return task.DepartmentID == actor.DepartmentID || assignedTo(task, actor)
	case domain.RoleDepartmentUser:
		if assignedTo(task, actor) {
			return true
		}
		return task.AssignedToID == "" && task.DepartmentID == actor.DepartmentID
	}
	return false
}

// CanDelete reports whether actor may move task to the recycle bin.
func CanDelete(task domain.Task, actor domain.Actor) bool {
	switch actor.Role {
	case domain.RoleMasterAdmin:
		return true
	case domain.RoleAdmin:
		return task.DepartmentID == actor.DepartmentID
	}
	return false
}

// CanCreate reports whether actor may create tasks or run imports.
func CanCreate(actor domain.Actor) bool {
	return actor.Role == domain.RoleMasterAdmin || actor.Role == domain.RoleAdmin
}

func assignedTo(task domain.Task, actor domain.Actor) bool {
	return actor.ID != "" && task.AssignedToID == actor.ID
}
