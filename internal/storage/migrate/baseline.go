package migrate

// baselineSchema is the schema as it stood at version 6, the oldest release
// still in the field. Every column added since then arrives through the
// migration sequence, so a fresh install and a six-version-old device end up
// byte-for-byte identical.
//
// Clinical tables carry no foreign key to patients on purpose: the purge
// passes may remove a patient while an unsynced dependent record survives as
// a designed orphan until it uploads.
const baselineSchema = `
CREATE TABLE users (
	uuid TEXT PRIMARY KEY NOT NULL,
	full_name TEXT NOT NULL,
	phone_number TEXT NOT NULL,
	pin_digest TEXT NOT NULL,
	status TEXT NOT NULL,
	access_token TEXT,
	facility_uuid TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE facilities (
	uuid TEXT PRIMARY KEY NOT NULL,
	name TEXT NOT NULL,
	facility_type TEXT,
	street_address TEXT,
	district TEXT NOT NULL,
	state TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT 'India',
	pin_code TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME,
	sync_status TEXT NOT NULL
);

CREATE TABLE patients (
	uuid TEXT PRIMARY KEY NOT NULL,
	full_name TEXT NOT NULL,
	gender TEXT NOT NULL,
	date_of_birth DATETIME,
	age INTEGER,
	age_updated_at DATETIME,
	status TEXT NOT NULL,
	registration_facility_uuid TEXT NOT NULL,
	bp_passport TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME,
	sync_status TEXT NOT NULL
);

CREATE TABLE patient_addresses (
	uuid TEXT PRIMARY KEY NOT NULL,
	patient_uuid TEXT NOT NULL,
	street_address TEXT,
	colony_or_village TEXT,
	zone TEXT,
	district TEXT NOT NULL,
	state TEXT NOT NULL,
	country TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME,
	sync_status TEXT NOT NULL
);

CREATE TABLE patient_phone_numbers (
	uuid TEXT PRIMARY KEY NOT NULL,
	patient_uuid TEXT NOT NULL,
	number TEXT NOT NULL,
	phone_type TEXT NOT NULL DEFAULT 'mobile',
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME,
	sync_status TEXT NOT NULL
);

-- Identifier names predate the uuid naming convention; renamed in 10->11.
CREATE TABLE blood_pressure_measurements (
	id TEXT PRIMARY KEY NOT NULL,
	patient_id TEXT NOT NULL,
	facility_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	systolic INTEGER NOT NULL,
	diastolic INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME,
	sync_status TEXT NOT NULL
);

CREATE TABLE appointments (
	uuid TEXT PRIMARY KEY NOT NULL,
	patient_uuid TEXT NOT NULL,
	facility_uuid TEXT NOT NULL,
	scheduled_date DATETIME NOT NULL,
	status TEXT NOT NULL,
	cancel_reason TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME,
	sync_status TEXT NOT NULL
);

CREATE VIRTUAL TABLE patient_fuzzy_search USING fts5(full_name, content='');

-- Local-only sync bookkeeping, never uploaded.
CREATE TABLE sync_tokens (
	resource TEXT PRIMARY KEY NOT NULL,
	token TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX idx_patients_facility ON patients(registration_facility_uuid);
CREATE INDEX idx_bp_patient ON blood_pressure_measurements(patient_id);
CREATE INDEX idx_appointments_patient ON appointments(patient_uuid);
CREATE INDEX idx_appointments_facility ON appointments(facility_uuid, status);
`
