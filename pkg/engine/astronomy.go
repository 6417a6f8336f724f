package engine

import "github.com/skywatchai/reportforge/pkg/domain"

// DefaultAstronomyPipeline returns the built-in report pipeline: three
// research stages feeding a final reporting stage that sees all of their
// output. Deployments can replace it via the pipeline definition file.
func DefaultAstronomyPipeline() *domain.PipelineGraph {
	return &domain.PipelineGraph{
		Name: "astronomy-intelligence",
		Stages: []domain.StageDefinition{
			{
				Name: "discovery_search",
				Role: "Astronomy Research Specialist",
				Template: "Find the latest discoveries and information about {topic} in astronomy. " +
					"Include recent findings, important developments, and upcoming events if relevant.",
				ExpectedOutput: "Detailed list of recent astronomical discoveries and information related to {topic}.",
			},
			{
				Name: "observatory_data",
				Role: "Observatory Data Analyst",
				Template: "Collect data from NASA, ESA, and other reputable space observatories about {topic}. " +
					"Include mission data, telescope observations, and other relevant information.",
				ExpectedOutput: "Summarized data from observatories about {topic}.",
				DependsOn:      []string{"discovery_search"},
			},
			{
				Name: "paper_analysis",
				Role: "Astronomical Research Paper Analyst",
				Template: "Analyze recent research papers about {topic} focusing on the findings and observations mentioned earlier. " +
					"Summarize key insights understandable to the public and experts.",
				ExpectedOutput: "Summarized key findings from recent research papers about {topic}.",
				DependsOn:      []string{"observatory_data"},
			},
			{
				Name: "final_report",
				Role: "Astronomy News Reporter",
				Template: "Compile a final, comprehensive report on {topic} incorporating all findings, discoveries, research insights, " +
					"and observatory data. The report should be detailed and informative for enthusiasts and experts alike.",
				ExpectedOutput: "Final intelligence report about {topic} summarizing all findings in detail.",
				DependsOn:      []string{"discovery_search", "observatory_data", "paper_analysis"},
			},
		},
	}
}
