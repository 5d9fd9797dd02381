package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS thwack_runs (
		project_id INTEGER NOT NULL,
		run_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		passes INTEGER DEFAULT 0,
		warnings INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		minutes_used INTEGER DEFAULT 0,
		report_file TEXT,
		web_url TEXT,
		archived_at TIMESTAMP NOT NULL,
		PRIMARY KEY (project_id, run_id)
	);`,
	`CREATE TABLE IF NOT EXISTS thwack_test_cases (
		id SERIAL PRIMARY KEY,
		project_id INTEGER NOT NULL,
		run_id INTEGER NOT NULL,
		test_id INTEGER NOT NULL,
		test_name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		device TEXT NOT NULL DEFAULT '',
		message TEXT,
		created_at TIMESTAMP DEFAULT NOW(),
		UNIQUE(project_id, run_id, test_id, outcome, device),
		FOREIGN KEY (project_id, run_id) REFERENCES thwack_runs(project_id, run_id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS thwack_performance (
		id SERIAL PRIMARY KEY,
		project_id INTEGER NOT NULL,
		run_id INTEGER NOT NULL,
		device TEXT NOT NULL,
		metric TEXT NOT NULL,
		min_value FLOAT,
		avg_value FLOAT,
		max_value FLOAT,
		created_at TIMESTAMP DEFAULT NOW(),
		UNIQUE(project_id, run_id, device, metric),
		FOREIGN KEY (project_id, run_id) REFERENCES thwack_runs(project_id, run_id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_thwack_test_cases_name ON thwack_test_cases(test_name);`,
	`CREATE INDEX IF NOT EXISTS idx_thwack_runs_archived ON thwack_runs(project_id, archived_at DESC);`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS thwack_runs (
		project_id INT NOT NULL,
		run_id INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		result VARCHAR(32),
		passes INT DEFAULT 0,
		warnings INT DEFAULT 0,
		failures INT DEFAULT 0,
		errors INT DEFAULT 0,
		minutes_used INT DEFAULT 0,
		report_file TEXT,
		web_url TEXT,
		archived_at DATETIME NOT NULL,
		PRIMARY KEY (project_id, run_id),
		INDEX idx_thwack_runs_archived (project_id, archived_at)
	);`,
	`CREATE TABLE IF NOT EXISTS thwack_test_cases (
		id INT AUTO_INCREMENT PRIMARY KEY,
		project_id INT NOT NULL,
		run_id INT NOT NULL,
		test_id INT NOT NULL,
		test_name VARCHAR(512) NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		device VARCHAR(255) NOT NULL DEFAULT '',
		message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_thwack_test_case (project_id, run_id, test_id, outcome, device),
		INDEX idx_thwack_test_cases_name (test_name),
		FOREIGN KEY (project_id, run_id) REFERENCES thwack_runs(project_id, run_id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS thwack_performance (
		id INT AUTO_INCREMENT PRIMARY KEY,
		project_id INT NOT NULL,
		run_id INT NOT NULL,
		device VARCHAR(255) NOT NULL,
		metric VARCHAR(64) NOT NULL,
		min_value DOUBLE,
		avg_value DOUBLE,
		max_value DOUBLE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_thwack_performance (project_id, run_id, device, metric),
		FOREIGN KEY (project_id, run_id) REFERENCES thwack_runs(project_id, run_id) ON DELETE CASCADE
	);`,
}
