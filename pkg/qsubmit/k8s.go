package qsubmit

import (
	"context"
	"fmt"
	"strings"

	"github.com/quatton/qfold/pkg/k8s"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

const (
	// KueueQueueLabel is the label key for Kueue queue name
	KueueQueueLabel = "kueue.x-k8s.io/queue-name"

	LabelJob   = "qfold.job"
	LabelStage = "qfold.stage"

	// GPUResource is the extended resource requested for gpus.
	GPUResource corev1.ResourceName = "nvidia.com/gpu"

	jobsVolume = "jobs"
)

// JobManager handles Kubernetes Job operations
type JobManager struct {
	client    kubernetes.Interface
	namespace string
}

func NewJobManager(client kubernetes.Interface, namespace string) *JobManager {
	return &JobManager{client: client, namespace: namespace}
}

// CreateJob creates a new Kubernetes Job
func (jm *JobManager) CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	return jm.client.BatchV1().Jobs(jm.namespace).Create(ctx, job, metav1.CreateOptions{})
}

// ListJobs lists the Jobs created for one job stage.
func (jm *JobManager) ListJobs(ctx context.Context, job string, stage Stage) (*batchv1.JobList, error) {
	return jm.client.BatchV1().Jobs(jm.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", LabelJob, job, LabelStage, stage),
	})
}

// K8sSubmitter runs each request as a Kubernetes Job. The jobs root is a
// hostPath volume mounted at the same path; with a queue set the Job starts
// suspended and Kueue admits it.
type K8sSubmitter struct {
	jobs     *JobManager
	jobsRoot string
	image    string
	queue    string
}

func NewK8sSubmitter(client kubernetes.Interface, opts BackendOptions) *K8sSubmitter {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	image := opts.Container.Image
	if image == "" {
		image = DefaultContainerConfig().Image
	}
	return &K8sSubmitter{
		jobs:     NewJobManager(client, namespace),
		jobsRoot: opts.JobsRoot,
		image:    image,
		queue:    opts.Queue,
	}
}

// NewK8sSubmitterFromConfig builds the clientset from the kubeconfig lookup.
func NewK8sSubmitterFromConfig(opts BackendOptions) (*K8sSubmitter, error) {
	client, err := k8s.NewClient(opts.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("creating k8s client: %w", err)
	}
	return NewK8sSubmitter(client, opts), nil
}

func (s *K8sSubmitter) Name() string { return BackendK8s }

// Submit creates the Job unless one already exists for the job stage, which
// happens when a previous pass lost its marker.
func (s *K8sSubmitter) Submit(ctx context.Context, req Request) (Submission, error) {
	existing, err := s.jobs.ListJobs(ctx, req.Job, req.Stage)
	if err != nil {
		return Submission{}, submissionError(BackendK8s, req.Job, err)
	}
	if len(existing.Items) > 0 {
		return Submission{Backend: BackendK8s, SchedulerID: existing.Items[0].Name}, nil
	}

	job, err := s.buildJob(req)
	if err != nil {
		return Submission{}, err
	}
	created, err := s.jobs.CreateJob(ctx, job)
	if err != nil {
		return Submission{}, submissionError(BackendK8s, req.Job, err)
	}
	return Submission{Backend: BackendK8s, SchedulerID: created.Name}, nil
}

func (s *K8sSubmitter) buildJob(req Request) (*batchv1.Job, error) {
	res, err := ResourcesFrom(req.Config)
	if err != nil {
		return nil, err
	}

	requests := corev1.ResourceList{}
	limits := corev1.ResourceList{}
	if res.CPUs > 0 {
		requests[corev1.ResourceCPU] = *resource.NewQuantity(res.CPUs, resource.DecimalSI)
	}
	if res.MemoryBytes > 0 {
		mem := *resource.NewQuantity(res.MemoryBytes, resource.BinarySI)
		requests[corev1.ResourceMemory] = mem
		limits[corev1.ResourceMemory] = mem
	}
	if res.GPUs > 0 {
		limits[GPUResource] = *resource.NewQuantity(res.GPUs, resource.DecimalSI)
	}

	labels := map[string]string{
		LabelJob:   req.Job,
		LabelStage: string(req.Stage),
	}
	if s.queue != "" {
		labels[KueueQueueLabel] = s.queue
	}

	name := containerName(req)
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
		},
		Spec: batchv1.JobSpec{
			Parallelism:  ptr.To(int32(1)),
			Completions:  ptr.To(int32(1)),
			Suspend:      ptr.To(s.queue != ""),
			BackoffLimit: ptr.To(int32(0)),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:       "main",
						Image:      s.image,
						Command:    scriptCommand(req),
						WorkingDir: req.JobDir,
						Env: []corev1.EnvVar{
							{Name: "QFOLD_JOB", Value: req.Job},
							{Name: "QFOLD_STAGE", Value: string(req.Stage)},
						},
						Resources: corev1.ResourceRequirements{
							Requests: requests,
							Limits:   limits,
						},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      jobsVolume,
							MountPath: s.jobsRoot,
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: jobsVolume,
						VolumeSource: corev1.VolumeSource{
							HostPath: &corev1.HostPathVolumeSource{Path: s.jobsRoot},
						},
					}},
				},
			},
		},
	}, nil
}
