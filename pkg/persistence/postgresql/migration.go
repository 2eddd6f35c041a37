package postgresql

// Entities are stored as JSONB documents next to the columns used for lookups and locking.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE users (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				email VARCHAR(255) NOT NULL,
				data JSONB NOT NULL
			);

			CREATE UNIQUE INDEX idx_users_account_email ON users(account_id, lower(email));

			CREATE TABLE user_groups (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_user_groups_account_id ON user_groups(account_id);

			CREATE TABLE templates (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				data JSONB NOT NULL
			);

			CREATE TABLE workflows (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				data JSONB NOT NULL
			);

			CREATE TABLE tasks (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				workflow_id BIGINT NOT NULL REFERENCES workflows(id),
				number INT NOT NULL,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_tasks_workflow_id ON tasks(workflow_id);

			CREATE TABLE task_performers (
				id BIGSERIAL PRIMARY KEY,
				task_id BIGINT NOT NULL REFERENCES tasks(id),
				data JSONB NOT NULL
			);

			CREATE INDEX idx_task_performers_task_id ON task_performers(task_id);
		`,
		2: `
			CREATE TABLE workflow_events (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				workflow_id BIGINT NOT NULL REFERENCES workflows(id),
				data JSONB NOT NULL
			);

			CREATE INDEX idx_workflow_events_workflow_id ON workflow_events(workflow_id);

			CREATE TABLE file_attachments (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				event_id BIGINT,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_file_attachments_event_id ON file_attachments(event_id);
		`,
	}
}
