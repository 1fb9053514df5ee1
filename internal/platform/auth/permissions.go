package auth

import "fmt"

// Role is a staff or patient role as stored on the user record.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleReceptionist  Role = "receptionist"
	RoleLabTechnician Role = "lab_technician"
	RolePharmacist    Role = "pharmacist"
	RoleAccountant    Role = "accountant"
	RolePatient       Role = "patient"
)

// Capability is a named operation the portal can authorize.
type Capability string

const (
	CapManageUsers        Capability = "manage_users"
	CapProvisionMFA       Capability = "provision_mfa"
	CapReadAuditLog       Capability = "read_audit_log"
	CapWriteMedicalFile   Capability = "write_medical_file"
	CapWriteLabReport     Capability = "write_lab_report"
	CapWritePrescription  Capability = "write_prescription"
	CapWriteBillingRecord Capability = "write_billing_record"
	CapUpdateDemographics Capability = "update_demographics"
	CapScheduleVisit      Capability = "schedule_visit"
)

// FieldClass labels a category of encrypted clinical data. Decryption rights
// are granted per class, never per capability.
type FieldClass string

const (
	FieldMedicalFile  FieldClass = "medical_file"
	FieldLabReport    FieldClass = "lab_report"
	FieldPrescription FieldClass = "prescription"
	FieldBillingLine  FieldClass = "billing_line"
	FieldDemographic  FieldClass = "demographic"
)

// AllRoles lists every role the matrices must cover.
var AllRoles = []Role{
	RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist,
	RoleLabTechnician, RolePharmacist, RoleAccountant, RolePatient,
}

// AllCapabilities lists every capability the matrices must cover.
var AllCapabilities = []Capability{
	CapManageUsers, CapProvisionMFA, CapReadAuditLog,
	CapWriteMedicalFile, CapWriteLabReport, CapWritePrescription,
	CapWriteBillingRecord, CapUpdateDemographics, CapScheduleVisit,
}

// AllFieldClasses lists every field class the matrices must cover.
var AllFieldClasses = []FieldClass{
	FieldMedicalFile, FieldLabReport, FieldPrescription, FieldBillingLine,
	FieldDemographic,
}

// capabilityMatrix is the complete role-to-capability grant table. Every pair
// is written out so that a grant is always a deliberate line in this file,
// never a default. Admin rows deliberately deny clinical writes: operators
// administer accounts, they do not author charts.
var capabilityMatrix = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageUsers:        true,
		CapProvisionMFA:       true,
		CapReadAuditLog:       true,
		CapWriteMedicalFile:   false,
		CapWriteLabReport:     false,
		CapWritePrescription:  false,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: false,
		CapScheduleVisit:      false,
	},
	RoleDoctor: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   true,
		CapWriteLabReport:     false,
		CapWritePrescription:  true,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: false,
		CapScheduleVisit:      true,
	},
	RoleNurse: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   true,
		CapWriteLabReport:     false,
		CapWritePrescription:  false,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: false,
		CapScheduleVisit:      true,
	},
	RoleReceptionist: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   false,
		CapWriteLabReport:     false,
		CapWritePrescription:  false,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: true,
		CapScheduleVisit:      true,
	},
	RoleLabTechnician: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   false,
		CapWriteLabReport:     true,
		CapWritePrescription:  false,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: false,
		CapScheduleVisit:      false,
	},
	RolePharmacist: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   false,
		CapWriteLabReport:     false,
		CapWritePrescription:  false,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: false,
		CapScheduleVisit:      false,
	},
	RoleAccountant: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   false,
		CapWriteLabReport:     false,
		CapWritePrescription:  false,
		CapWriteBillingRecord: true,
		CapUpdateDemographics: false,
		CapScheduleVisit:      false,
	},
	RolePatient: {
		CapManageUsers:        false,
		CapProvisionMFA:       false,
		CapReadAuditLog:       false,
		CapWriteMedicalFile:   false,
		CapWriteLabReport:     false,
		CapWritePrescription:  false,
		CapWriteBillingRecord: false,
		CapUpdateDemographics: false,
		CapScheduleVisit:      true,
	},
}

// fieldMatrix is the complete role-to-field-class decrypt table.
var fieldMatrix = map[Role]map[FieldClass]bool{
	RoleAdmin: {
		FieldMedicalFile:  false,
		FieldLabReport:    false,
		FieldPrescription: false,
		FieldBillingLine:  false,
		FieldDemographic:  false,
	},
	RoleDoctor: {
		FieldMedicalFile:  true,
		FieldLabReport:    true,
		FieldPrescription: true,
		FieldBillingLine:  false,
		FieldDemographic:  true,
	},
	RoleNurse: {
		FieldMedicalFile:  true,
		FieldLabReport:    true,
		FieldPrescription: true,
		FieldBillingLine:  false,
		FieldDemographic:  true,
	},
	RoleReceptionist: {
		FieldMedicalFile:  false,
		FieldLabReport:    false,
		FieldPrescription: false,
		FieldBillingLine:  false,
		FieldDemographic:  true,
	},
	RoleLabTechnician: {
		FieldMedicalFile:  false,
		FieldLabReport:    true,
		FieldPrescription: false,
		FieldBillingLine:  false,
		FieldDemographic:  false,
	},
	RolePharmacist: {
		FieldMedicalFile:  false,
		FieldLabReport:    false,
		FieldPrescription: true,
		FieldBillingLine:  false,
		FieldDemographic:  false,
	},
	RoleAccountant: {
		FieldMedicalFile:  false,
		FieldLabReport:    false,
		FieldPrescription: false,
		FieldBillingLine:  true,
		FieldDemographic:  false,
	},
	RolePatient: {
		FieldMedicalFile:  true,
		FieldLabReport:    true,
		FieldPrescription: true,
		FieldBillingLine:  true,
		FieldDemographic:  true,
	},
}

// Can reports whether role may perform cap. Unknown roles and unknown
// capabilities are denied.
func Can(role Role, cap Capability) bool {
	row, ok := capabilityMatrix[role]
	if !ok {
		return false
	}
	return row[cap]
}

// CanDecrypt reports whether role may decrypt data of the given class.
// Unknown roles and unknown classes are denied.
func CanDecrypt(role Role, class FieldClass) bool {
	row, ok := fieldMatrix[role]
	if !ok {
		return false
	}
	return row[class]
}

// ValidRole reports whether r is one of the roles the matrices cover.
func ValidRole(r Role) bool {
	_, ok := capabilityMatrix[r]
	return ok
}

// ValidateMatrices checks that both grant tables are complete: every role has
// an explicit entry for every capability and every field class. The server
// refuses to start on an incomplete table.
func ValidateMatrices() error {
	for _, r := range AllRoles {
		caps, ok := capabilityMatrix[r]
		if !ok {
			return fmt.Errorf("capability matrix missing role %q", r)
		}
		for _, c := range AllCapabilities {
			if _, ok := caps[c]; !ok {
				return fmt.Errorf("capability matrix missing entry (%q, %q)", r, c)
			}
		}
		fields, ok := fieldMatrix[r]
		if !ok {
			return fmt.Errorf("field matrix missing role %q", r)
		}
		for _, f := range AllFieldClasses {
			if _, ok := fields[f]; !ok {
				return fmt.Errorf("field matrix missing entry (%q, %q)", r, f)
			}
		}
	}
	return nil
}
